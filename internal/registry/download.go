package registry

import "context"

type downloadKey struct{}

// AsDownload marks ctx so a Get made with it counts as a download. Plain
// reads, such as resolving a directive, leave the registry unchanged.
func AsDownload(ctx context.Context) context.Context {
	return context.WithValue(ctx, downloadKey{}, true)
}

// IsDownload reports whether ctx was marked by AsDownload.
func IsDownload(ctx context.Context) bool {
	v, _ := ctx.Value(downloadKey{}).(bool)
	return v
}
