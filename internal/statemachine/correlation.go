package statemachine

// invocation ties a tool-call message to the id the backend will echo back.
type invocation struct {
	callID    string
	toolName  string
	messageID string
	// explicit is set when the backend chose callID, so it can name the call later.
	explicit bool
	settled  bool
}

// correlator tracks outstanding tool invocations. A result naming a known
// call id resolves that invocation; otherwise it resolves the oldest open
// invocation of the same tool.
type correlator struct {
	byCall map[string]*invocation
	byTool map[string][]*invocation
}

func newCorrelator() *correlator {
	return &correlator{
		byCall: make(map[string]*invocation),
		byTool: make(map[string][]*invocation),
	}
}

func (c *correlator) open(toolName, callID, messageID string, explicit bool) {
	inv := &invocation{callID: callID, toolName: toolName, messageID: messageID, explicit: explicit}
	c.byCall[callID] = inv
	c.byTool[toolName] = append(c.byTool[toolName], inv)
}

func (c *correlator) peek(callID string) (*invocation, bool) {
	inv, ok := c.byCall[callID]
	return inv, ok
}

func (c *correlator) resolve(toolName, callID string) (*invocation, bool) {
	if callID != "" {
		if inv, ok := c.byCall[callID]; ok {
			c.remove(inv)
			return inv, true
		}
	}
	if toolName == "" {
		return nil, false
	}
	queue := c.byTool[toolName]
	if len(queue) == 0 {
		return nil, false
	}
	inv := queue[0]
	c.remove(inv)
	return inv, true
}

// settle closes every open invocation at the end of an agent turn. Settled
// calls never match by tool name again; only those the backend named
// itself stay reachable through their call id.
func (c *correlator) settle() {
	c.byTool = make(map[string][]*invocation)
	for id, inv := range c.byCall {
		if !inv.explicit {
			delete(c.byCall, id)
			continue
		}
		inv.settled = true
	}
}

func (c *correlator) remove(inv *invocation) {
	delete(c.byCall, inv.callID)
	queue := c.byTool[inv.toolName]
	for i, candidate := range queue {
		if candidate == inv {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(c.byTool, inv.toolName)
		return
	}
	c.byTool[inv.toolName] = queue
}

func (c *correlator) outstanding() int {
	n := 0
	for _, inv := range c.byCall {
		if !inv.settled {
			n++
		}
	}
	return n
}

func (c *correlator) clear() {
	c.byCall = make(map[string]*invocation)
	c.byTool = make(map[string][]*invocation)
}
