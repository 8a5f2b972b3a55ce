package schema

// InternalFields are maintained by the platform rather than by form data.
var InternalFields = []string{
	"apk_version_created",
	"apk_version_modified",
	"created",
	"email",
	"firebase_uuid",
	"group_uuid",
	"latitude",
	"longitude",
	"managed_uuid",
	"modified",
	"role_uuid",
	"slot",
	"uuid",
	"version_created",
	"version_modified",
}

// ReadableInternals are the internal fields clients may see.
var ReadableInternals = []string{
	"created",
	"latitude",
	"longitude",
	"modified",
	"uuid",
	"version_created",
	"version_modified",
}

// WritableInternals are the internal fields clients may send.
var WritableInternals = []string{"uuid"}

// Mask selects which internal fields a view hides.
type Mask int

const (
	// MaskAll hides nothing.
	MaskAll Mask = iota
	// MaskRead hides internal fields that are not readable.
	MaskRead
	// MaskWrite hides internal fields that are not writable.
	MaskWrite
)

var (
	bannedRead  = difference(InternalFields, ReadableInternals)
	bannedWrite = difference(InternalFields, WritableInternals)
)

// Banned reports whether field is hidden under m.
func (m Mask) Banned(field string) bool {
	switch m {
	case MaskRead:
		_, ok := bannedRead[field]
		return ok
	case MaskWrite:
		_, ok := bannedWrite[field]
		return ok
	}
	return false
}

func (m Mask) String() string {
	switch m {
	case MaskRead:
		return "read"
	case MaskWrite:
		return "write"
	}
	return "all"
}

// Strip returns a copy of doc without the fields m hides.
func (m Mask) Strip(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if !m.Banned(k) {
			out[k] = v
		}
	}
	return out
}

func difference(all, keep []string) map[string]struct{} {
	kept := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		kept[k] = struct{}{}
	}
	out := make(map[string]struct{}, len(all))
	for _, f := range all {
		if _, ok := kept[f]; !ok {
			out[f] = struct{}{}
		}
	}
	return out
}
