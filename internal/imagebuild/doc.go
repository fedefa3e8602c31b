// SPDX-License-Identifier: MPL-2.0

// Package imagebuild builds the layered application image.
//
// The image is a chain of stages declared in the stack configuration. Each
// stage is generated as its own Dockerfile whose FROM is the previous stage's
// tag, so stage N+1 can only start once stage N's image exists. Every stage
// carries a cache-key label computed from its parent's key, its Dockerfile and
// the build arguments; a stage whose image already carries the expected key is
// reused without invoking the engine.
//
// Cache invalidation is expressed as a Scope, a set of stage names forced to
// rebuild without the engine's layer cache. Invalidating a stage invalidates
// every stage after it:
//
//	builder := imagebuild.NewBuilder(engine, cfg, imagebuild.WithLogger(logger))
//	artifact, err := builder.Build(ctx, imagebuild.FinalLayerOnly(cfg.StageNames()), env)
package imagebuild
