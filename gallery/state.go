// Package gallery owns the discovered asset collection, the selection and the derived
// views. Every writer replaces exactly one asset, keyed by id, so concurrent enrichment,
// tagging and export callbacks never disturb unrelated entries.
package gallery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/models"
	"github.com/facette/natsort"
)

var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrAlreadyAnalyzing = errors.New("analysis already in progress")
)

type SortMode string

const (
	SortDiscovery SortMode = "discovery"
	SortName      SortMode = "name"
	SortSize      SortMode = "size"
)

// ParseSortMode accepts the empty string as SortDiscovery.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortDiscovery:
		return SortDiscovery, nil
	case SortName:
		return SortName, nil
	case SortSize:
		return SortSize, nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

type State struct {
	mu           sync.RWMutex
	assets       map[string]models.Asset
	order        []string // discovery order
	selected     map[string]struct{}
	filter       string
	sortMode     SortMode
	processingID string
	exporting    bool
	observer     func(models.Asset)
}

func New() *State {
	return &State{
		assets:   make(map[string]models.Asset),
		selected: make(map[string]struct{}),
		sortMode: SortDiscovery,
	}
}

// SetObserver registers a callback invoked, outside the lock, with the new value of every
// asset that changes.
func (s *State) SetObserver(fn func(models.Asset)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Load replaces the collection with a fresh discovery result. Ids are new, so selection
// and the processing marker are cleared. It refuses and returns false while an export
// is running.
func (s *State) Load(assets []models.Asset) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return false
	}
	s.assets = make(map[string]models.Asset, len(assets))
	s.order = make([]string, 0, len(assets))
	for _, a := range assets {
		if _, dup := s.assets[a.ID]; dup {
			continue
		}
		s.assets[a.ID] = a.Clone()
		s.order = append(s.order, a.ID)
	}
	s.selected = make(map[string]struct{})
	s.processingID = ""
	return true
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *State) Get(id string) (models.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return models.Asset{}, false
	}
	return s.viewLocked(a), true
}

// Assets returns every asset in display order, ignoring the filter.
func (s *State) Assets() []models.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(false)
}

// Filtered returns the visible assets in display order.
func (s *State) Filtered() []models.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(true)
}

func (s *State) SetFilter(text string) {
	s.mu.Lock()
	s.filter = text
	s.mu.Unlock()
}

func (s *State) Filter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

func (s *State) SetSort(mode SortMode) {
	s.mu.Lock()
	s.sortMode = mode
	s.mu.Unlock()
}

func (s *State) Sort() SortMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortMode
}

func matches(a models.Asset, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(a.DisplayName), needle) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func (s *State) orderedIDsLocked() []string {
	ids := append([]string(nil), s.order...)
	switch s.sortMode {
	case SortName:
		sort.SliceStable(ids, func(i, j int) bool {
			return natsort.Compare(strings.ToLower(s.assets[ids[i]].DisplayName), strings.ToLower(s.assets[ids[j]].DisplayName))
		})
	case SortSize:
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := s.assets[ids[i]].SizeBytes, s.assets[ids[j]].SizeBytes
			if a == 0 || b == 0 {
				return a != 0 && b == 0
			}
			return a > b
		})
	}
	return ids
}

func (s *State) viewLocked(a models.Asset) models.Asset {
	v := a.Clone()
	v.Processing = a.ID != "" && a.ID == s.processingID
	return v
}

func (s *State) collectLocked(filtered bool) []models.Asset {
	needle := ""
	if filtered {
		needle = strings.ToLower(s.filter)
	}
	out := make([]models.Asset, 0, len(s.order))
	for _, id := range s.orderedIDsLocked() {
		a := s.assets[id]
		if matches(a, needle) {
			out = append(out, s.viewLocked(a))
		}
	}
	return out
}

// Toggle flips one asset's selection. It is a no-op while an export is active or when the
// id is unknown; the return value reports whether anything changed.
func (s *State) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return false
	}
	if _, ok := s.assets[id]; !ok {
		return false
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	return true
}

// SelectAll selects every discovered asset, or none when all are already selected. The
// universe is the full collection, not the filtered view.
func (s *State) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exporting {
		return
	}
	if len(s.order) > 0 && len(s.selected) == len(s.order) {
		s.selected = make(map[string]struct{})
		return
	}
	s.selected = make(map[string]struct{}, len(s.order))
	for _, id := range s.order {
		s.selected[id] = struct{}{}
	}
}

func (s *State) ClearSelection() {
	s.mu.Lock()
	s.selected = make(map[string]struct{})
	s.mu.Unlock()
}

func (s *State) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[id]
	return ok
}

// SelectedAssets snapshots the selected assets in current display order.
func (s *State) SelectedAssets() []models.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Asset
	for _, id := range s.orderedIDsLocked() {
		if _, ok := s.selected[id]; ok {
			out = append(out, s.viewLocked(s.assets[id]))
		}
	}
	return out
}

func (s *State) SelectedIDs() []string {
	assets := s.SelectedAssets()
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	return ids
}

// SelectedSize sums SizeBytes over the selection. A zero sum is reported as nil: unknown,
// not empty.
func (s *State) SelectedSize() *int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for id := range s.selected {
		total += s.assets[id].SizeBytes
	}
	if total == 0 {
		return nil
	}
	return &total
}

// update replaces the one asset with the given id after fn modifies a private copy.
// fn returns false to leave the asset untouched.
func (s *State) update(id string, fn func(*models.Asset) bool) (models.Asset, bool) {
	s.mu.Lock()
	current, ok := s.assets[id]
	if !ok {
		s.mu.Unlock()
		return models.Asset{}, false
	}
	next := current.Clone()
	if !fn(&next) {
		s.mu.Unlock()
		return current, false
	}
	s.assets[id] = next
	view := s.viewLocked(next)
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer(view)
	}
	return view, true
}

// ApplySize records a probe result once; later results for the same asset are ignored.
func (s *State) ApplySize(id string, info models.SizeInfo) bool {
	_, ok := s.update(id, func(a *models.Asset) bool {
		if a.FormattedSize != nil {
			return false
		}
		formatted := info.FormattedSize
		a.FormattedSize = &formatted
		a.SizeBytes = info.SizeBytes
		return true
	})
	return ok
}

// ApplyDimensions records a decode signal: dimensions plus any EXIF fields found.
func (s *State) ApplyDimensions(id string, details models.ImageDetails) bool {
	dims := media.FormatDimensions(details.Width, details.Height)
	_, ok := s.update(id, func(a *models.Asset) bool {
		a.Dimensions = &dims
		if details.CameraModel != nil {
			a.CameraModel = details.CameraModel
		}
		if details.TakenAt != nil {
			a.TakenAt = details.TakenAt
		}
		return true
	})
	return ok
}

// BeginAnalysis marks the asset as analyzing. It fails when the asset is unknown or
// already in flight.
func (s *State) BeginAnalysis(id string) error {
	var busy bool
	_, ok := s.update(id, func(a *models.Asset) bool {
		if a.Analyzing {
			busy = true
			return false
		}
		a.Analyzing = true
		return true
	})
	switch {
	case busy:
		return ErrAlreadyAnalyzing
	case !ok:
		return ErrAssetNotFound
	}
	return nil
}

// ApplyTags stores the analysis result and clears the analyzing flag.
func (s *State) ApplyTags(id string, tags []string) bool {
	_, ok := s.update(id, func(a *models.Asset) bool {
		a.Analyzing = false
		a.Tags = append([]string{}, tags...)
		return true
	})
	return ok
}

// ClearAnalysis clears the analyzing flag and leaves tags as they were.
func (s *State) ClearAnalysis(id string) bool {
	_, ok := s.update(id, func(a *models.Asset) bool {
		a.Analyzing = false
		return true
	})
	return ok
}

// SetProcessing moves the single export processing marker; an empty id clears it.
func (s *State) SetProcessing(id string) {
	s.mu.Lock()
	prev := s.processingID
	s.processingID = id
	observer := s.observer
	var changed []models.Asset
	for _, touched := range []string{prev, id} {
		if a, ok := s.assets[touched]; ok && touched != "" {
			changed = append(changed, s.viewLocked(a))
		}
	}
	s.mu.Unlock()

	if observer != nil && prev != id {
		for _, a := range changed {
			observer(a)
		}
	}
}

func (s *State) ProcessingID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processingID
}

// SetExporting freezes selection toggles while an export runs.
func (s *State) SetExporting(active bool) {
	s.mu.Lock()
	s.exporting = active
	s.mu.Unlock()
}

func (s *State) Exporting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exporting
}
