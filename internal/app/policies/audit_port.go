package policies

import "context"

// AuditArchive stores immutable records of administrative decisions.
type AuditArchive interface {
	Archive(ctx context.Context, key string, body []byte) error
}
