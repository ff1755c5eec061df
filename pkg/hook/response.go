package hook

import (
	"encoding/json"
	"io"
)

// WriteResponse encodes resp to w as the hook's sole stdout payload. An
// empty Response (the allow case) is written as `{}` rather than omitted
// entirely, since an empty stdout stream and the keyword documented in
// spec.md §6.1 are both read the same way by the caller, and `{}` is
// unambiguous to parse either way.
func WriteResponse(w io.Writer, resp Response) error {
	enc := json.NewEncoder(w)
	return enc.Encode(resp)
}
