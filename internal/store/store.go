// Package store holds the volatile in-memory registry of projects and clips.
// Everything is rebuilt from scratch on restart; callers only ever see
// snapshot copies, never the shared records themselves.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipforge-backend/internal/models"
)

type Store struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*models.Project
}

func New() *Store {
	return &Store{projects: make(map[uuid.UUID]*models.Project)}
}

// ProjectSeed carries the caller-supplied fields of a new project.
type ProjectSeed struct {
	UserID    string
	Title     string
	SourceURL string
}

// ProjectUpdate is a partial update; nil fields are left untouched.
type ProjectUpdate struct {
	Title       *string
	Status      *string
	Progress    *int
	ProgressMsg *string
	VideoPath   *string
}

// ClipUpdate is a partial clip update; nil fields are left untouched.
type ClipUpdate struct {
	Title          *string
	Start          *float64
	End            *float64
	Status         *string
	Exported       *bool
	Reframe        *bool
	CaptionStyle   *string
	ExportProgress *int
	ClipPath       *string
	ThumbPath      *string
	FileSize       *int64
}

func (s *Store) Create(seed ProjectSeed) *models.Project {
	now := time.Now()
	userID := seed.UserID
	if userID == "" {
		userID = "anonymous"
	}
	title := seed.Title
	if title == "" {
		title = "Untitled Project"
	}

	p := &models.Project{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		SourceURL:   seed.SourceURL,
		Status:      models.ProjectStatusQueued,
		Progress:    0,
		ProgressMsg: "Queued...",
		Clips:       []models.Clip{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.projects[p.ID] = p
	s.mu.Unlock()

	return cloneProject(p)
}

func (s *Store) Get(id uuid.UUID) (*models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}
	return cloneProject(p), true
}

// List returns all projects, newest first. An empty userID matches everything.
func (s *Store) List(userID string) []*models.Project {
	s.mu.RLock()
	out := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if userID != "" && p.UserID != userID {
			continue
		}
		out = append(out, cloneProject(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Update(id uuid.UUID, upd ProjectUpdate) (*models.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}

	if upd.Title != nil {
		p.Title = *upd.Title
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.Progress != nil {
		p.Progress = *upd.Progress
	}
	if upd.ProgressMsg != nil {
		p.ProgressMsg = *upd.ProgressMsg
	}
	if upd.VideoPath != nil {
		vp := *upd.VideoPath
		p.VideoPath = &vp
	}
	p.UpdatedAt = time.Now()

	return cloneProject(p), true
}

// AddClip appends a clip to the project. A zero clip ID gets a fresh one.
func (s *Store) AddClip(projectID uuid.UUID, clip models.Clip) (*models.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, false
	}

	if clip.ID == uuid.Nil {
		clip.ID = uuid.New()
	}
	if clip.CaptionStyle == "" {
		clip.CaptionStyle = models.DefaultCaptionStyle
	}
	clip.CreatedAt = time.Now()

	p.Clips = append(p.Clips, clip)
	p.UpdatedAt = time.Now()

	c := cloneClip(&clip)
	return &c, true
}

func (s *Store) UpdateClip(projectID, clipID uuid.UUID, upd ClipUpdate) (*models.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, false
	}

	for i := range p.Clips {
		if p.Clips[i].ID != clipID {
			continue
		}
		c := &p.Clips[i]

		if upd.Title != nil {
			c.Title = *upd.Title
		}
		if upd.Start != nil {
			c.Start = *upd.Start
		}
		if upd.End != nil {
			c.End = *upd.End
		}
		if upd.Status != nil {
			c.Status = *upd.Status
		}
		if upd.Exported != nil {
			c.Exported = *upd.Exported
		}
		if upd.Reframe != nil {
			c.Reframe = *upd.Reframe
		}
		if upd.CaptionStyle != nil {
			c.CaptionStyle = *upd.CaptionStyle
		}
		if upd.ExportProgress != nil {
			c.ExportProgress = *upd.ExportProgress
		}
		if upd.ClipPath != nil {
			cp := *upd.ClipPath
			c.ClipPath = &cp
		}
		if upd.ThumbPath != nil {
			tp := *upd.ThumbPath
			c.ThumbPath = &tp
		}
		if upd.FileSize != nil {
			c.FileSize = *upd.FileSize
		}
		p.UpdatedAt = time.Now()

		out := cloneClip(c)
		return &out, true
	}

	return nil, false
}

// BeginExport atomically claims a clip for export. It refuses when the
// clip is already exporting, so concurrent claims resolve to exactly one
// winner. found reports whether the clip exists at all.
func (s *Store) BeginExport(projectID, clipID uuid.UUID) (started, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return false, false
	}
	for i := range p.Clips {
		if p.Clips[i].ID != clipID {
			continue
		}
		c := &p.Clips[i]
		if c.Status == models.ClipStatusExporting {
			return false, true
		}
		c.Status = models.ClipStatusExporting
		c.ExportProgress = 0
		p.UpdatedAt = time.Now()
		return true, true
	}
	return false, false
}

func (s *Store) RemoveClip(projectID, clipID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return false
	}

	for i := range p.Clips {
		if p.Clips[i].ID == clipID {
			p.Clips = append(p.Clips[:i], p.Clips[i+1:]...)
			p.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// GetClip looks up a single clip snapshot.
func (s *Store) GetClip(projectID, clipID uuid.UUID) (*models.Clip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, false
	}
	for i := range p.Clips {
		if p.Clips[i].ID == clipID {
			c := cloneClip(&p.Clips[i])
			return &c, true
		}
	}
	return nil, false
}

func cloneProject(p *models.Project) *models.Project {
	out := *p
	if p.VideoPath != nil {
		vp := *p.VideoPath
		out.VideoPath = &vp
	}
	out.Clips = make([]models.Clip, len(p.Clips))
	for i := range p.Clips {
		out.Clips[i] = cloneClip(&p.Clips[i])
	}
	return &out
}

func cloneClip(c *models.Clip) models.Clip {
	out := *c
	if c.ClipPath != nil {
		cp := *c.ClipPath
		out.ClipPath = &cp
	}
	if c.ThumbPath != nil {
		tp := *c.ThumbPath
		out.ThumbPath = &tp
	}
	if c.Captions != nil {
		out.Captions = append([]models.CaptionWord(nil), c.Captions...)
	}
	if c.Metadata != nil {
		m := *c.Metadata
		m.Titles = append([]string(nil), c.Metadata.Titles...)
		m.Hashtags = append([]string(nil), c.Metadata.Hashtags...)
		out.Metadata = &m
	}
	return out
}
