// Package erp is the gateway to the per-tenant ERP databases, spoken over
// the ERP's XML-RPC interface. Record operations authenticate with a fixed
// service credential scoped to the target database; database lifecycle
// operations authenticate with the master password.
package erp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config carries the connection settings for the gateway.
type Config struct {
	// URL is the ERP base URL, e.g. http://odoo-service:8069.
	URL string
	// ServiceLogin / ServicePassword authenticate record operations against
	// every tenant database.
	ServiceLogin    string
	ServicePassword string
	// MasterPassword authorizes database lifecycle operations.
	MasterPassword string
	// Timeout bounds every RPC call.
	Timeout time.Duration
	// SessionTTL enables session caching per database when positive; zero
	// keeps the re-authenticate-per-call behavior.
	SessionTTL time.Duration
}

// Client is the ERP gateway. All record operations are per tenant database.
type Client struct {
	cfg      Config
	rpc      caller
	sessions sessionProvider
	logger   *zap.Logger
}

// NewClient builds a gateway from config.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		rpc:    newXMLRPCCaller(cfg.URL, cfg.Timeout),
		logger: logger,
	}
	if cfg.SessionTTL > 0 {
		c.sessions = newCachedProvider(c.authenticate, cfg.SessionTTL)
	} else {
		c.sessions = &reauthProvider{authenticate: c.authenticate}
	}
	return c
}

// newClientWithCaller is the test seam.
func newClientWithCaller(cfg Config, rpc caller, logger *zap.Logger) *Client {
	c := &Client{cfg: cfg, rpc: rpc, logger: logger}
	if cfg.SessionTTL > 0 {
		c.sessions = newCachedProvider(c.authenticate, cfg.SessionTTL)
	} else {
		c.sessions = &reauthProvider{authenticate: c.authenticate}
	}
	return c
}

// Authenticate acquires a working session for the database. Exposed so
// callers can probe a tenant database without performing an operation.
func (c *Client) Authenticate(ctx context.Context, database string) (Session, error) {
	return c.sessions.Session(ctx, database)
}

func (c *Client) authenticate(ctx context.Context, database string) (int64, error) {
	var reply any
	args := []any{database, c.cfg.ServiceLogin, c.cfg.ServicePassword, map[string]any{}}
	if err := c.rpc.Call(ctx, serviceCommon, "authenticate", args, &reply); err != nil {
		return 0, wrapCallError(serviceCommon, "authenticate", err)
	}

	switch uid := reply.(type) {
	case int64:
		if uid > 0 {
			return uid, nil
		}
	case int:
		if uid > 0 {
			return int64(uid), nil
		}
	}
	// The ERP answers false (or 0) for a rejected credential pair.
	return 0, &AuthenticationError{Database: database}
}

// execute runs an authenticated method on a model in the tenant database.
func (c *Client) execute(ctx context.Context, database, model, method string, args []any, kwargs map[string]any, reply any) error {
	session, err := c.sessions.Session(ctx, database)
	if err != nil {
		return err
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	callArgs := []any{database, session.UID, c.cfg.ServicePassword, model, method, args, kwargs}
	if err := c.rpc.Call(ctx, serviceObject, "execute_kw", callArgs, reply); err != nil {
		c.sessions.Invalidate(database)
		return wrapCallError(serviceObject, model+"."+method, err)
	}
	return nil
}

// CreateRecord inserts a record and returns its assigned id.
func (c *Client) CreateRecord(ctx context.Context, database, model string, fields map[string]any) (int64, error) {
	var reply any
	if err := c.execute(ctx, database, model, "create", []any{fields}, nil, &reply); err != nil {
		return 0, err
	}
	id, ok := toInt64(reply)
	if !ok {
		return 0, &RemoteError{Service: serviceObject, Method: model + ".create", Err: fmt.Errorf("unexpected create reply %T", reply)}
	}
	c.logDebug("created erp record", database, model, id)
	return id, nil
}

// UpdateRecord writes field values onto an existing record.
func (c *Client) UpdateRecord(ctx context.Context, database, model string, id int64, fields map[string]any) error {
	var reply any
	if err := c.execute(ctx, database, model, "write", []any{[]int64{id}, fields}, nil, &reply); err != nil {
		return err
	}
	c.logDebug("updated erp record", database, model, id)
	return nil
}

// ReadRecord fetches a record, optionally restricted to a field list.
func (c *Client) ReadRecord(ctx context.Context, database, model string, id int64, fields []string) (map[string]any, error) {
	kwargs := map[string]any{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}

	var reply any
	if err := c.execute(ctx, database, model, "read", []any{[]int64{id}}, kwargs, &reply); err != nil {
		return nil, err
	}

	rows := toRecordList(reply)
	if len(rows) == 0 {
		return map[string]any{}, nil
	}
	return rows[0], nil
}

// SearchRecords runs a search_read with the given domain filter.
func (c *Client) SearchRecords(ctx context.Context, database, model string, domain []any, fields []string, limit int) ([]map[string]any, error) {
	kwargs := map[string]any{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	if limit > 0 {
		kwargs["limit"] = limit
	}

	var reply any
	if err := c.execute(ctx, database, model, "search_read", []any{domain}, kwargs, &reply); err != nil {
		return nil, err
	}
	return toRecordList(reply), nil
}

// DuplicateDatabase clones a template database for a new tenant.
func (c *Client) DuplicateDatabase(ctx context.Context, source, target string) error {
	var reply any
	args := []any{c.cfg.MasterPassword, source, target}
	if err := c.rpc.Call(ctx, serviceDB, "duplicate_database", args, &reply); err != nil {
		return wrapCallError(serviceDB, "duplicate_database", err)
	}
	return nil
}

// DropDatabase permanently deletes a tenant database.
func (c *Client) DropDatabase(ctx context.Context, database string) error {
	var reply any
	args := []any{c.cfg.MasterPassword, database}
	if err := c.rpc.Call(ctx, serviceDB, "drop", args, &reply); err != nil {
		return wrapCallError(serviceDB, "drop", err)
	}
	return nil
}

// ListDatabases returns every database known to the server.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	var reply []string
	if err := c.rpc.Call(ctx, serviceDB, "list", []any{}, &reply); err != nil {
		return nil, wrapCallError(serviceDB, "list", err)
	}
	return reply, nil
}

// InstallCapabilities installs the named capability modules in the database,
// skipping the ones already active. Calling it twice with the same names is a
// no-op the second time.
func (c *Client) InstallCapabilities(ctx context.Context, database string, names []string) error {
	if len(names) == 0 {
		return nil
	}

	domain := []any{
		[]any{"name", "in", names},
		[]any{"state", "!=", "installed"},
	}
	var reply any
	if err := c.execute(ctx, database, "ir.module.module", "search", []any{domain}, nil, &reply); err != nil {
		return err
	}

	ids := toInt64List(reply)
	if len(ids) == 0 {
		return nil
	}

	var installReply any
	if err := c.execute(ctx, database, "ir.module.module", "button_immediate_install", []any{ids}, nil, &installReply); err != nil {
		return err
	}
	c.logDebug("installed capabilities", database, "ir.module.module", int64(len(ids)))
	return nil
}

// InstalledCapabilities lists the capability modules active in the database.
func (c *Client) InstalledCapabilities(ctx context.Context, database string) ([]string, error) {
	domain := []any{[]any{"state", "=", "installed"}}
	rows, err := c.SearchRecords(ctx, database, "ir.module.module", domain, []string{"name"}, 0)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// CreateUser creates a user in the tenant database, optionally granting the
// administration settings group.
func (c *Client) CreateUser(ctx context.Context, database, email, displayName string, isAdmin bool) (int64, error) {
	// The initial password is random and never surfaced; the user resets it
	// through the ERP's own flow.
	fields := map[string]any{
		"name":              displayName,
		"login":             email,
		"email":             email,
		"password":          uuid.NewString(),
		"notification_type": "inbox",
	}

	userID, err := c.CreateRecord(ctx, database, "res.users", fields)
	if err != nil {
		return 0, err
	}
	if !isAdmin {
		return userID, nil
	}

	domain := []any{
		[]any{"category_id.name", "=", "Administration"},
		[]any{"name", "=", "Settings"},
	}
	var reply any
	if err := c.execute(ctx, database, "res.groups", "search", []any{domain}, nil, &reply); err != nil {
		return 0, err
	}

	groupIDs := toInt64List(reply)
	if len(groupIDs) > 0 {
		link := map[string]any{"groups_id": []any{[]any{4, groupIDs[0]}}}
		if err := c.UpdateRecord(ctx, database, "res.users", userID, link); err != nil {
			return 0, err
		}
	}

	return userID, nil
}

func (c *Client) logDebug(msg, database, model string, id int64) {
	if c.logger != nil {
		c.logger.Debug(msg, zap.String("database", database), zap.String("model", model), zap.Int64("id", id))
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toInt64List(v any) []int64 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(list))
	for _, item := range list {
		if id, ok := toInt64(item); ok {
			out = append(out, id)
		}
	}
	return out
}

func toRecordList(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]any); ok {
			out = append(out, row)
		}
	}
	return out
}
