package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
)

// cacheableHeaders is the fixed allow-list of request headers that
// participate in key derivation. Headers outside this list never affect
// the cache key.
var cacheableHeaders = []string{"Accept", "Accept-Language"}

// KeyRequest carries the parts of an HTTP request that participate in key
// derivation.
type KeyRequest struct {
	Path        string            `json:"path"`
	QueryString string            `json:"query_string"`
	Headers     map[string]string `json:"headers"`
}

// KeyRequestFrom extracts the cache-relevant parts of an HTTP request.
func KeyRequestFrom(r *http.Request) KeyRequest {
	headers := make(map[string]string, len(cacheableHeaders))
	for _, name := range cacheableHeaders {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	return KeyRequest{
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		Headers:     headers,
	}
}

// keyData is the canonical structure that is serialized and hashed to form
// a cache key. encoding/json sorts map keys, so equal inputs always produce
// the same serialization.
type keyData struct {
	Namespace string                 `json:"namespace"`
	Args      []interface{}          `json:"args"`
	Kwargs    map[string]interface{} `json:"kwargs"`
	Request   *KeyRequest            `json:"request,omitempty"`
}

// Key derives a deterministic cache key from the namespace, the call
// arguments and the cache-relevant request data. The key is prefixed with
// the namespace so that Clear(namespace) can match it.
func Key(namespace string, args []interface{}, kwargs map[string]interface{}, req *KeyRequest) string {
	data, err := json.Marshal(keyData{
		Namespace: namespace,
		Args:      args,
		Kwargs:    kwargs,
		Request:   req,
	})
	if err != nil {
		// Unencodable arguments fall back to an unhashed namespace key so
		// callers still get a stable, namespace-clearable key.
		return namespace + ":unhashable"
	}
	sum := md5.Sum(data)
	return namespace + ":" + hex.EncodeToString(sum[:])
}
