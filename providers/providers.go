// Package providers registers every built-in provider implementation with the
// default registry.
package providers

import (
	_ "github.com/subwatch/subwatch/provider/youtube"
)
