package jobs

// PublishFunc receives a snapshot of a job after every committed change.
type PublishFunc func(job *ServerJob)

// PublishingStore wraps a Store and reports every successful write.
type PublishingStore struct {
	Store
	publish PublishFunc
}

// NewPublishingStore decorates inner so that writes are pushed to publish.
func NewPublishingStore(inner Store, publish PublishFunc) *PublishingStore {
	return &PublishingStore{Store: inner, publish: publish}
}

func (s *PublishingStore) Create(job *ServerJob) error {
	if err := s.Store.Create(job); err != nil {
		return err
	}
	s.emit(job.Clone())
	return nil
}

func (s *PublishingStore) Update(id string, mutate func(job *ServerJob) error) (*ServerJob, error) {
	job, err := s.Store.Update(id, mutate)
	if err != nil {
		return job, err
	}
	s.emit(job.Clone())
	return job, nil
}

func (s *PublishingStore) emit(job *ServerJob) {
	if s.publish != nil {
		s.publish(job)
	}
}
