// Package loader registers every HTTP service through blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/confdesk-go/internal/services/desk"
	_ "github.com/MahdiBaghbani/confdesk-go/internal/services/feed"
)
