package filters

import "leanpdf/object"

// ExtractFilters reads the /Filter chain and matching /DecodeParms
// from a stream dictionary. resolve dereferences indirect values and
// may be nil for dictionaries known to be direct.
func ExtractFilters(dict *object.Dict, resolve func(object.Object) object.Object) ([]object.Name, []*object.Dict) {
	if resolve == nil {
		resolve = func(o object.Object) object.Object { return o }
	}
	var names []object.Name
	var params []*object.Dict

	f, ok := dict.Get("Filter")
	if !ok {
		return nil, nil
	}
	switch fv := resolve(f).(type) {
	case object.Name:
		names = append(names, fv)
	case *object.Array:
		for _, item := range fv.Items {
			if n, ok := resolve(item).(object.Name); ok {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	params = make([]*object.Dict, len(names))
	if p, ok := dict.Get("DecodeParms"); ok {
		switch pv := resolve(p).(type) {
		case *object.Dict:
			params[0] = pv
		case *object.Array:
			for i, item := range pv.Items {
				if i >= len(params) {
					break
				}
				if d, ok := resolve(item).(*object.Dict); ok {
					params[i] = d
				}
			}
		}
	}
	return names, params
}
