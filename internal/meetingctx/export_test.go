package meetingctx

// Test-only accessors for internal Manager state inspected by the external
// test package (manager_test.go lives in meetingctx_test so it can use the
// mock subpackage without an import cycle).

// TopicBufferLen reports the number of utterances buffered for the current
// topic.
func (m *Manager) TopicBufferLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.l0topic.len()
}

// LastSummarizedID reports the ID of the last utterance folded into an L1
// summary.
func (m *Manager) LastSummarizedID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSummarizedID
}

// CurrentSegIdx reports the index of the current topic's segment.
func (m *Manager) CurrentSegIdx() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSegIdx
}
