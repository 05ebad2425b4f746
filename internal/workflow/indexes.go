package workflow

import (
	"deepreport/internal/evidence"
)

// FromManager adapts an evidence manager to IndexProvider.
func FromManager(m *evidence.Manager) IndexProvider {
	return managerProvider{m: m}
}

type managerProvider struct {
	m *evidence.Manager
}

func (p managerProvider) Create(taskID string) (EvidenceIndex, error) {
	idx, err := p.m.Create(taskID)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (p managerProvider) Open(taskID string) (EvidenceIndex, error) {
	idx, err := p.m.Open(taskID)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
