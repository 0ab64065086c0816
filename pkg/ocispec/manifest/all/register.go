// Package all registers all builtin image manifest schema implements.
package all

import (
	// Docker v2 schema1 is intentionally not registered: the registry rejects
	// it outright (MANIFEST_INVALID) rather than parsing it.
	_ "github.com/wuxler/ruasec/pkg/ocispec/manifest/dockerschema2" // register docker schema 2
	_ "github.com/wuxler/ruasec/pkg/ocispec/manifest/ocischema"     // register oci schema
)
