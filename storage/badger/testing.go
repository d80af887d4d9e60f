package badger

import "errors"

// Repositories bundles the repositories sharing one backend.
type Repositories struct {
	Backend *Backend
	Reviews *ReviewRepository
	Vectors *VectorRepository
	Audit   *AuditRepository
}

// OpenRepositories opens a backend and every repository on top of it.
func OpenRepositories(path string, inMemory bool, dimension int) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	reviews, err := NewReviewRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	vectors, err := NewVectorRepository(backend, dimension)
	if err != nil {
		reviews.Close()
		backend.Close()
		return nil, err
	}

	audit, err := NewAuditRepository(backend)
	if err != nil {
		vectors.Close()
		reviews.Close()
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend: backend,
		Reviews: reviews,
		Vectors: vectors,
		Audit:   audit,
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories(dimension int) (*Repositories, error) {
	return OpenRepositories("", true, dimension)
}

// Close closes the repositories and then the backend.
func (r *Repositories) Close() error {
	return errors.Join(
		r.Audit.Close(),
		r.Vectors.Close(),
		r.Reviews.Close(),
		r.Backend.Close(),
	)
}
