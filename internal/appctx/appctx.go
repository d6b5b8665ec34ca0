// Package appctx holds the process-wide selection state: which
// workflow and which agent the operator is currently looking at. It is
// constructed once in main and passed by reference, with a single
// writer per field; everything else only reads.
package appctx

import "sync"

// Context is the console's shared selection state.
type Context struct {
	mu         sync.RWMutex
	workflowID string
	peerID     string
}

// New returns an empty selection context.
func New() *Context {
	return &Context{}
}

// SelectWorkflow records the workflow under inspection ("" deselects).
func (c *Context) SelectWorkflow(id string) {
	c.mu.Lock()
	c.workflowID = id
	c.mu.Unlock()
}

// WorkflowID returns the selected workflow id, or "".
func (c *Context) WorkflowID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workflowID
}

// SelectPeer records the agent whose chat panel is open ("" closes it).
func (c *Context) SelectPeer(id string) {
	c.mu.Lock()
	c.peerID = id
	c.mu.Unlock()
}

// PeerID returns the selected agent id, or "".
func (c *Context) PeerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}
