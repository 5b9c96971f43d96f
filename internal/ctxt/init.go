// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package ctxt

import (
	_ "github.com/hydrogendeuteride/QuaternionEngine-sub003/driver/null"
)

func init() {
	if err := loadDriver("vulkan"); err != nil {
		// Fall back to any registered driver
		// (the null backend at minimum).
		if err = loadDriver(""); err != nil {
			panic(err)
		}
	}
}
