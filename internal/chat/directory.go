package chat

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Presence resolves the live session of an identity.
type Presence interface {
	SessionID(identity string) (uuid.UUID, bool)
}

// RoomInfo is a snapshot of a room.
type RoomInfo struct {
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Members   []string  `json:"members"`
}

type room struct {
	name      string
	createdBy string
	createdAt time.Time
	members   map[string]struct{}
}

func (r *room) info() RoomInfo {
	members := lo.Keys(r.members)
	slices.Sort(members)
	return RoomInfo{
		Name:      r.name,
		CreatedBy: r.createdBy,
		CreatedAt: r.createdAt,
		Members:   members,
	}
}

// membership is the set of rooms joined by one session.
type membership struct {
	session uuid.UUID
	rooms   map[string]struct{}
}

// Directory maps room names to members and identities to joined rooms.
// Rooms are retained when their last member leaves.
type Directory struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	joined   map[string]*membership
	presence Presence
	limits   Limits
	log      *slog.Logger
	now      func() time.Time
}

// NewDirectory creates an empty directory. Only identities that presence
// reports as live can become members.
func NewDirectory(presence Presence, limits Limits, log *slog.Logger) *Directory {
	return &Directory{
		rooms:    make(map[string]*room),
		joined:   make(map[string]*membership),
		presence: presence,
		limits:   limits.sanitize(),
		log:      log,
		now:      time.Now,
	}
}

// Create adds a room named name and joins creator to it.
func (d *Directory) Create(name, creator string) (RoomInfo, error) {
	name, err := d.limits.NormalizeRoomName(name)
	if err != nil {
		return RoomInfo{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.rooms[name]; exists {
		return RoomInfo{}, fmt.Errorf("%w: %s", ErrRoomExists, name)
	}
	m, err := d.membershipLocked(creator)
	if err != nil {
		return RoomInfo{}, err
	}
	if len(m.rooms) >= d.limits.MaxRoomsPerUser {
		return RoomInfo{}, fmt.Errorf("%w: limit is %d", ErrRoomQuota, d.limits.MaxRoomsPerUser)
	}

	r := &room{
		name:      name,
		createdBy: creator,
		createdAt: d.now().UTC(),
		members:   make(map[string]struct{}),
	}
	d.rooms[name] = r
	d.addLocked(r, creator, m)
	d.log.Info("Room created", "room", name, "creator", creator, "rooms", len(d.rooms))
	return r.info(), nil
}

// Join adds identity to the room. Joining a room twice succeeds.
func (d *Directory) Join(name, identity string) (RoomInfo, error) {
	name, err := d.limits.NormalizeRoomName(name)
	if err != nil {
		return RoomInfo{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		return RoomInfo{}, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	m, err := d.membershipLocked(identity)
	if err != nil {
		return RoomInfo{}, err
	}
	if _, member := m.rooms[name]; member {
		return r.info(), nil
	}
	if len(r.members) >= d.limits.MaxUsersPerRoom {
		return RoomInfo{}, fmt.Errorf("%w: %s has %d members", ErrRoomFull, name, len(r.members))
	}
	if len(m.rooms) >= d.limits.MaxRoomsPerUser {
		return RoomInfo{}, fmt.Errorf("%w: limit is %d", ErrRoomQuota, d.limits.MaxRoomsPerUser)
	}

	d.addLocked(r, identity, m)
	d.log.Debug("Room joined", "room", name, "identity", identity, "members", len(r.members))
	return r.info(), nil
}

// Leave removes identity from the room.
func (d *Directory) Leave(name, identity string) error {
	name, err := d.limits.NormalizeRoomName(name)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	if _, member := r.members[identity]; !member {
		return fmt.Errorf("%w: %s", ErrNotMember, name)
	}
	d.removeLocked(r, identity)
	d.log.Debug("Room left", "room", name, "identity", identity, "members", len(r.members))
	return nil
}

// Evict removes the session from every room it joined and returns those
// rooms. Memberships of a newer session with the same identity are kept.
func (d *Directory) Evict(s *Session) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.joined[s.Identity]
	if !ok || m.session != s.ID {
		return nil
	}
	left := d.dropLocked(s.Identity, m)
	if len(left) > 0 {
		d.log.Info("Evicted from rooms", "identity", s.Identity, "rooms", left)
	}
	return left
}

// Members returns a sorted snapshot of the room's members.
func (d *Directory) Members(name string) ([]string, error) {
	info, err := d.Info(name)
	if err != nil {
		return nil, err
	}
	return info.Members, nil
}

// Info returns a snapshot of the room.
func (d *Directory) Info(name string) (RoomInfo, error) {
	name, err := d.limits.NormalizeRoomName(name)
	if err != nil {
		return RoomInfo{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return RoomInfo{}, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	return r.info(), nil
}

// Member is a room member together with the session that joined.
type Member struct {
	Identity string
	Session  uuid.UUID
}

// Roster returns a snapshot of the room and its members, each tagged with
// the session holding the membership. Members are ordered by identity.
func (d *Directory) Roster(name string) (RoomInfo, []Member, error) {
	name, err := d.limits.NormalizeRoomName(name)
	if err != nil {
		return RoomInfo{}, nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return RoomInfo{}, nil, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	info := r.info()
	members := lo.FilterMap(info.Members, func(identity string, _ int) (Member, bool) {
		m, ok := d.joined[identity]
		if !ok {
			return Member{}, false
		}
		return Member{Identity: identity, Session: m.session}, true
	})
	return info, members, nil
}

// IsMember reports whether identity is in the room.
func (d *Directory) IsMember(name, identity string) (bool, error) {
	name, err := d.limits.NormalizeRoomName(name)
	if err != nil {
		return false, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	_, member := r.members[identity]
	return member, nil
}

// RoomsOf returns the sorted names of the rooms identity has joined.
func (d *Directory) RoomsOf(identity string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.joined[identity]
	if !ok {
		return []string{}
	}
	rooms := lo.Keys(m.rooms)
	slices.Sort(rooms)
	return rooms
}

// List returns the sorted names of all rooms, empty ones included.
func (d *Directory) List() []string {
	d.mu.RLock()
	names := lo.Keys(d.rooms)
	d.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Rooms returns snapshots of all rooms ordered by name.
func (d *Directory) Rooms() []RoomInfo {
	d.mu.RLock()
	infos := lo.MapToSlice(d.rooms, func(_ string, r *room) RoomInfo { return r.info() })
	d.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Restore re-creates empty rooms from persisted records, skipping invalid
// names and rooms that already exist. It returns the number restored.
func (d *Directory) Restore(records []RoomRecord) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	restored := 0
	for _, rec := range records {
		name, err := d.limits.NormalizeRoomName(rec.Name)
		if err != nil {
			d.log.Warn("Skipping persisted room", "room", rec.Name, "error", err)
			continue
		}
		if _, exists := d.rooms[name]; exists {
			continue
		}
		d.rooms[name] = &room{
			name:      name,
			createdBy: rec.CreatedBy,
			createdAt: rec.CreatedAt,
			members:   make(map[string]struct{}),
		}
		restored++
	}
	return restored
}

// membershipLocked returns the membership of identity's live session,
// discarding leftovers of an earlier session.
func (d *Directory) membershipLocked(identity string) (*membership, error) {
	sid, ok := d.presence.SessionID(identity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, identity)
	}
	m, ok := d.joined[identity]
	if ok && m.session == sid {
		return m, nil
	}
	if ok {
		d.dropLocked(identity, m)
	}
	return &membership{session: sid, rooms: make(map[string]struct{})}, nil
}

func (d *Directory) addLocked(r *room, identity string, m *membership) {
	r.members[identity] = struct{}{}
	m.rooms[r.name] = struct{}{}
	d.joined[identity] = m
}

func (d *Directory) removeLocked(r *room, identity string) {
	delete(r.members, identity)
	if m, ok := d.joined[identity]; ok {
		delete(m.rooms, r.name)
		if len(m.rooms) == 0 {
			delete(d.joined, identity)
		}
	}
}

func (d *Directory) dropLocked(identity string, m *membership) []string {
	left := make([]string, 0, len(m.rooms))
	for name := range m.rooms {
		if r, ok := d.rooms[name]; ok {
			delete(r.members, identity)
		}
		left = append(left, name)
	}
	delete(d.joined, identity)
	slices.Sort(left)
	return left
}
