// Package audit journalise les actions sensibles (connexions, écritures
// admin, paiements du panier) dans ScyllaDB ou, à défaut, dans les logs.
package audit

import (
	"context"
	"time"

	"github.com/gocql/gocql"
	"github.com/sirupsen/logrus"

	"storefront_back_end/internal/models"
)

// Actions d'audit prédéfinies
const (
	ActionLogin         = "auth.login"
	ActionRegister      = "auth.register"
	ActionLogout        = "auth.logout"
	ActionProductCreate = "product.create"
	ActionProductUpdate = "product.update"
	ActionProductDelete = "product.delete"
	ActionProductImage  = "product.image"
	ActionOrderCreate   = "order.create"
	ActionOrderUpdate   = "order.update"
	ActionOrderStatus   = "order.status"
	ActionOrderDelete   = "order.delete"
	ActionCartCheckout  = "cart.checkout"
	ActionUserRoles     = "user.roles"
	ActionUserActive    = "user.active"
)

// Ressources
const (
	ResourceUser    = "user"
	ResourceProduct = "product"
	ResourceOrder   = "order"
	ResourceCart    = "cart"
)

type Recorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

const schema = `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id timeuuid PRIMARY KEY,
		user_id text,
		username text,
		action text,
		resource text,
		resource_id text,
		ip_address text,
		user_agent text,
		success boolean,
		error_msg text,
		timestamp timestamp
	)`

const insertQuery = `
	INSERT INTO audit_logs (
		id, user_id, username, action, resource, resource_id,
		ip_address, user_agent, success, error_msg, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ScyllaRecorder écrit les entrées de façon asynchrone dans audit_logs.
type ScyllaRecorder struct {
	exec    func(ctx context.Context, stmt string, values ...interface{}) error
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewScyllaRecorder(session *gocql.Session, timeout time.Duration) *ScyllaRecorder {
	return &ScyllaRecorder{
		exec: func(ctx context.Context, stmt string, values ...interface{}) error {
			return session.Query(stmt, values...).WithContext(ctx).Exec()
		},
		timeout: timeout,
		log:     logrus.WithField("component", "audit"),
	}
}

// EnsureSchema crée la table audit_logs si elle n'existe pas.
func (r *ScyllaRecorder) EnsureSchema(ctx context.Context) error {
	return r.exec(ctx, schema)
}

func (r *ScyllaRecorder) Record(_ context.Context, entry models.AuditLog) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	id := gocql.UUIDFromTime(entry.Timestamp)
	entry.ID = id.String()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		err := r.exec(ctx, insertQuery,
			id, entry.UserID, entry.Username, entry.Action, entry.Resource, entry.ResourceID,
			entry.IPAddress, entry.UserAgent, entry.Success, entry.ErrorMsg, entry.Timestamp,
		)
		if err != nil {
			r.log.WithError(err).WithField("action", entry.Action).Error("❌ Erreur enregistrement log audit")
		}
	}()
}

// LogRecorder écrit les entrées d'audit dans les logs applicatifs.
type LogRecorder struct {
	log logrus.FieldLogger
}

func NewLogRecorder(log logrus.FieldLogger) *LogRecorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogRecorder{log: log.WithField("component", "audit")}
}

func (r *LogRecorder) Record(_ context.Context, entry models.AuditLog) {
	fields := logrus.Fields{
		"action":      entry.Action,
		"resource":    entry.Resource,
		"resource_id": entry.ResourceID,
		"user_id":     entry.UserID,
		"ip":          entry.IPAddress,
		"success":     entry.Success,
	}
	if entry.Success {
		r.log.WithFields(fields).Info("📝 Audit")
		return
	}
	r.log.WithFields(fields).WithField("error", entry.ErrorMsg).Warn("📝 Audit (échec)")
}
