package respond

import (
	"context"
	"sync"
	"time"

	"argus/core"
	"argus/storage"
)

// memStore is an in-memory storage.Store for executor and incident tests.
type memStore struct {
	mu        sync.Mutex
	events    map[string]*core.SecurityEvent
	devices   map[string]*core.Device
	users     map[string]*core.User
	sessions  map[string]*core.UserSession
	iocs      map[string]*core.IOC
	actions   map[string]*core.ResponseAction
	incidents map[string]*core.Incident

	failGetDevice      error // injected fault
	failGetDeviceTimes int   // 0 means every call fails
}

func newMemStore() *memStore {
	return &memStore{
		events:    make(map[string]*core.SecurityEvent),
		devices:   make(map[string]*core.Device),
		users:     make(map[string]*core.User),
		sessions:  make(map[string]*core.UserSession),
		iocs:      make(map[string]*core.IOC),
		actions:   make(map[string]*core.ResponseAction),
		incidents: make(map[string]*core.Incident),
	}
}

func (s *memStore) InsertEvent(_ context.Context, event *core.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.EventID] = event
	return nil
}

func (s *memStore) GetEvent(_ context.Context, eventID string) (*core.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return nil, storage.ErrEventNotFound
	}
	return event, nil
}

func (s *memStore) FindUnresolvedEventsSince(_ context.Context, since time.Time) ([]*core.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*core.SecurityEvent
	for _, event := range s.events {
		if !event.IsResolved && !event.CreatedAt.Before(since) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (s *memStore) UpdateEventEnrichment(_ context.Context, eventID string, rawData map[string]interface{}, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return storage.ErrEventNotFound
	}
	event.RawData = rawData
	event.ConfidenceScore = confidence
	return nil
}

func (s *memStore) ResolveEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return storage.ErrEventNotFound
	}
	event.IsResolved = true
	return nil
}

func (s *memStore) GetDevice(_ context.Context, deviceRef string) (*core.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGetDevice != nil {
		err := s.failGetDevice
		if s.failGetDeviceTimes > 0 {
			s.failGetDeviceTimes--
			if s.failGetDeviceTimes == 0 {
				s.failGetDevice = nil
			}
		}
		return nil, err
	}
	device, ok := s.devices[deviceRef]
	if !ok {
		return nil, storage.ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

func (s *memStore) UpdateDevice(_ context.Context, deviceRef string, fields storage.DeviceFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[deviceRef]
	if !ok {
		return storage.ErrDeviceNotFound
	}
	if fields.TrustScore != nil {
		device.TrustScore = *fields.TrustScore
	}
	if fields.IsQuarantined != nil {
		device.IsQuarantined = *fields.IsQuarantined
	}
	if fields.IsCompliant != nil {
		device.IsCompliant = *fields.IsCompliant
	}
	return nil
}

func (s *memStore) UpsertDevice(_ context.Context, device *core.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.DeviceRef] = device
	return nil
}

func (s *memStore) GetUser(_ context.Context, userRef string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userRef]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) DeactivateUser(_ context.Context, userRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userRef]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.IsActive = false
	return nil
}

func (s *memStore) DeactivateUserSessions(_ context.Context, userRef string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, session := range s.sessions {
		if session.UserRef == userRef && session.IsActive {
			session.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *memStore) UpsertUser(_ context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserRef] = user
	return nil
}

func (s *memStore) InsertSession(_ context.Context, session *core.UserSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

func (s *memStore) UpsertIOC(_ context.Context, ioc *core.IOC) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iocs[ioc.Key()] = ioc
	return nil
}

func (s *memStore) LookupIOC(_ context.Context, iocType core.IOCType, value string) (*core.IOC, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ioc, ok := s.iocs[core.IOCKey(iocType, value)]
	if !ok {
		return nil, storage.ErrIOCNotFound
	}
	return ioc, nil
}

func (s *memStore) InsertAction(_ context.Context, action *core.ResponseAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *action
	s.actions[action.ActionID] = &copied
	return nil
}

func (s *memStore) UpdateActionStatus(_ context.Context, actionID string, status core.ActionStatus, failReason string, executedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[actionID]
	if !ok {
		return storage.ErrActionNotFound
	}
	action.Status = status
	action.FailReason = failReason
	action.ExecutedAt = executedAt
	return nil
}

func (s *memStore) GetActionsByEvent(_ context.Context, eventID string) ([]*core.ResponseAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var actions []*core.ResponseAction
	for _, action := range s.actions {
		if action.EventID == eventID {
			actions = append(actions, action)
		}
	}
	return actions, nil
}

func (s *memStore) SaveIncident(_ context.Context, incident *core.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *incident
	s.incidents[incident.IncidentID] = &copied
	return nil
}

func (s *memStore) GetIncident(_ context.Context, incidentID string) (*core.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.incidents[incidentID]
	if !ok {
		return nil, storage.ErrIncidentNotFound
	}
	copied := *incident
	return &copied, nil
}

func (s *memStore) ListOpenIncidents(_ context.Context) ([]*core.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var incidents []*core.Incident
	for _, incident := range s.incidents {
		if incident.Status == core.IncidentStatusOpen {
			copied := *incident
			incidents = append(incidents, &copied)
		}
	}
	return incidents, nil
}

// memFirewall records requested policies in memory.
type memFirewall struct {
	mu       sync.Mutex
	policies map[string]FirewallPolicy
}

func newMemFirewall() *memFirewall {
	return &memFirewall{policies: make(map[string]FirewallPolicy)}
}

func (f *memFirewall) ApplyPolicy(_ context.Context, deviceRef string, policy FirewallPolicy) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies[deviceRef] = policy
	return true, nil
}
