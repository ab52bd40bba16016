package override

import (
	"fmt"
	"reflect"
	"strings"
)

// TagName is the struct tag Discover reads.
const TagName = "override"

var featureType = reflect.TypeOf(Feature{})

// Discover registers the features declared as fields of container, which
// must be a non-nil pointer to a struct.
//
//   - *Feature and Feature fields become features. Nil pointers are
//     allocated. The key is the tag value, else the key already set on the
//     feature, else the lowerCamel field name.
//   - Struct and *struct fields become groups labelled by the tag value or
//     the field name. Groups nest to any depth.
//   - Embedded structs are flattened into the enclosing group.
//   - `override:"-"` skips a field. Unexported fields are ignored.
//
// Registration is all-or-nothing, as with Register.
func (r *Registry) Discover(container any) error {
	v := reflect.ValueOf(container)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: got %T", ErrContainerType, container)
	}
	return r.register(discoverStruct(v.Elem(), nil, map[reflect.Type]bool{}))
}

func discoverStruct(v reflect.Value, groups []string, path map[reflect.Type]bool) []entry {
	var entries []entry
	t := v.Type()
	path[t] = true
	defer delete(path, t)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, hasTag := field.Tag.Lookup(TagName)
		tag = strings.TrimSpace(tag)
		if tag == "-" {
			continue
		}
		if !field.IsExported() && !field.Anonymous {
			continue
		}
		fv := v.Field(i)

		switch {
		case field.Type == reflect.PointerTo(featureType):
			if !field.IsExported() {
				continue
			}
			if fv.IsNil() {
				fv.Set(reflect.ValueOf(NewFeature()))
			}
			entries = append(entries, discoverFeature(fv.Interface().(*Feature), field, tag, hasTag, groups))

		case field.Type == featureType:
			if !field.IsExported() {
				continue
			}
			f := fv.Addr().Interface().(*Feature)
			entries = append(entries, discoverFeature(f, field, tag, hasTag, groups))

		case isStructField(field.Type) && containsFeatures(field.Type, map[reflect.Type]bool{}):
			inner, ok := structValue(fv, path)
			if !ok {
				continue
			}
			next := groups
			if !field.Anonymous {
				label := field.Name
				if hasTag && tag != "" {
					label = tag
				}
				next = append(append([]string(nil), groups...), label)
			}
			entries = append(entries, discoverStruct(inner, next, path)...)
		}
	}
	return entries
}

func discoverFeature(f *Feature, field reflect.StructField, tag string, hasTag bool, groups []string) entry {
	switch {
	case hasTag && tag != "":
		f.setKey(tag)
	case f.Key() == "":
		f.setKey(lowerCamel(field.Name))
	}
	return entry{
		feature: f,
		label:   field.Name,
		groups:  groups,
	}
}

func isStructField(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// containsFeatures reports whether t declares a feature field at any depth.
func containsFeatures(t reflect.Type, seen map[reflect.Type]bool) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || seen[t] {
		return false
	}
	seen[t] = true
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get(TagName) == "-" {
			continue
		}
		if field.Type == featureType || field.Type == reflect.PointerTo(featureType) {
			if field.IsExported() {
				return true
			}
			continue
		}
		if (field.IsExported() || field.Anonymous) && containsFeatures(field.Type, seen) {
			return true
		}
	}
	return false
}

// structValue returns the addressable struct behind fv. Nil pointers are
// allocated unless their type is already being walked, which would recurse
// forever.
func structValue(fv reflect.Value, path map[reflect.Type]bool) (reflect.Value, bool) {
	if fv.Kind() != reflect.Pointer {
		return fv, true
	}
	if fv.IsNil() {
		if !fv.CanSet() || path[fv.Type().Elem()] {
			return reflect.Value{}, false
		}
		fv.Set(reflect.New(fv.Type().Elem()))
	}
	if path[fv.Type().Elem()] {
		return reflect.Value{}, false
	}
	return fv.Elem(), true
}
