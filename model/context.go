package model

// DefaultUploadedBy is stamped on records when the upload context carries
// no usable display name or username.
const DefaultUploadedBy = "desktop_user"

// UploadContext carries the caller-supplied identity for one upload run:
// which tenant the records belong to, who is uploading them, and optionally
// the bearer token to send with each request. Field names follow the same
// alias tolerance as case records.
type UploadContext map[string]any

// ClientID resolves the tenant/client identifier for injected records.
func (c UploadContext) ClientID() string {
	return c.first("client_id", "client", "username")
}

// UploadedBy resolves the uploader display name, falling back to
// DefaultUploadedBy when the context names nobody.
func (c UploadContext) UploadedBy() string {
	if v := c.first("display_name", "name", "username"); v != "" {
		return v
	}
	return DefaultUploadedBy
}

// Token returns the bearer credential supplied for this run, if any.
func (c UploadContext) Token() string {
	return c.first("token", "api_token", "bearer_token")
}

func (c UploadContext) first(names ...string) string {
	for _, name := range names {
		v, ok := c[name]
		if !ok || v == nil {
			continue
		}
		if s, ok := coerceString(v); ok {
			return s
		}
	}
	return ""
}
