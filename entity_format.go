package toolbox

import "fmt"

// EntityFormatter formats stored records of one entity.
type EntityFormatter struct {
	entity *Entity
}

func NewEntityFormatter(e *Entity) *EntityFormatter {
	return &EntityFormatter{entity: e}
}

// Format maps a raw record to a logical item. The raw record is not modified.
func (f *EntityFormatter) Format(raw Item, opts FormatOptions) (Item, error) {
	if raw == nil {
		return nil, NewError(CodeInvalidItem,
			fmt.Sprintf("Invalid item detected while formatting entity %q: no record.", f.entity.name))
	}
	v, err := Format(f.entity.schema, raw, opts)
	if err != nil {
		return nil, err
	}
	item, ok := v.(map[string]any)
	if !ok {
		return nil, NewError(CodeInvalidItem,
			fmt.Sprintf("Invalid item detected while formatting entity %q.", f.entity.name))
	}
	return item, nil
}

// Format is shorthand for NewEntityFormatter(e).Format.
func (e *Entity) Format(raw Item, opts FormatOptions) (Item, error) {
	return NewEntityFormatter(e).Format(raw, opts)
}
