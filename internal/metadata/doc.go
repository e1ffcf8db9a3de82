// Package metadata provides the workflow-control and attribute activities
// that operate on an entity's own metadata rather than its content.
package metadata
