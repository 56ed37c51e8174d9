package form

// mergeValues computes the map to persist: one entry per visible rendered
// field, combining the submitted value with the stored one through the
// field's Kind.  Hidden fields and fields left out of rendered never appear,
// so the adapter leaves their stored values alone.  Fields that end up nil are left out so
// the adapter does not write empty keys.
//
// Repeaters always take the submitted list.  It is rebuilt from the current
// options on every submit, which drops stored values for options that no
// longer exist.
func (h *Handler) mergeValues(cond *Conditions, data, existing map[string]any, rendered []string) map[string]any {
	out := make(map[string]any, len(data))
	for _, f := range h.Form.Fields {
		if !cond.ShouldShowField(f.ID) || !wasRendered(rendered, f.ID) {
			continue
		}
		submitted, stored := data[f.ID], existing[f.ID]

		var v any
		switch k, ok := h.kinds().Lookup(f.Type); {
		case f.Repeat:
			v = submitted
			if v == nil {
				v = []string{}
			}
		case ok:
			v = k.Merge(submitted, stored)
		default:
			v = mergeDefault(submitted, stored)
		}
		if v != nil {
			out[f.ID] = v
		}
	}
	return out
}
