package store

import "embed"

//go:embed seeds/*.yaml
var seedFS embed.FS
