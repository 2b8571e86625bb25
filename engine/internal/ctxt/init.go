// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package ctxt

import (
	_ "gviegas/rt/driver/null"
)

func init() {
	if err := loadDriver("vulkan"); err != nil {
		// Try all drivers.
		if err = loadDriver(""); err != nil {
			panic(err)
		}
	}
}
