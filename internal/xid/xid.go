package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns prefix-<uuid>. Version 7 ids sort by creation time.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}
