package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoteProjectRoot_StableForSamePath(t *testing.T) {
	a := remoteProjectRoot("/home/dev/projects/widget")
	b := remoteProjectRoot("/home/dev/projects/widget")
	assert.Equal(t, a, b)
}

func TestRemoteProjectRoot_DiffersForDifferentPaths(t *testing.T) {
	a := remoteProjectRoot("/home/dev/projects/widget")
	b := remoteProjectRoot("/home/dev/projects/gadget")
	assert.NotEqual(t, a, b)
}

func TestRemoteProjectRoot_UnderRemoteRootBase(t *testing.T) {
	root := remoteProjectRoot("/any/path")
	assert.Contains(t, root, remoteRootBase+"/")
}
