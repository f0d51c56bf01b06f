package memutils

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// Statistics summarizes the live objects of an allocation context
type Statistics struct {
	// BufferCount is the number of buffer objects that have been created or imported and not yet destroyed
	BufferCount int
	// HandleCount is the number of distinct kernel handles referenced by live buffer objects
	HandleCount int
	// MappingCount is the number of live virtual memory mappings
	MappingCount int
	// BufferBytes is the sum of the total sizes of all live buffer objects
	BufferBytes int
	// MappedBytes is the sum of the lengths of all live mappings
	MappedBytes int
}

func (s *Statistics) Clear() {
	s.BufferCount = 0
	s.HandleCount = 0
	s.MappingCount = 0
	s.BufferBytes = 0
	s.MappedBytes = 0
}

func (s *Statistics) AddBuffer(size int) {
	s.BufferCount++
	s.BufferBytes += size
}

func (s *Statistics) RemoveBuffer(size int) {
	s.BufferCount--
	s.BufferBytes -= size
}

func (s *Statistics) AddMapping(length int) {
	s.MappingCount++
	s.MappedBytes += length
}

func (s *Statistics) PrintJson(json *jwriter.ObjectState) {
	json.Name("BufferCount").Int(s.BufferCount)
	json.Name("HandleCount").Int(s.HandleCount)
	json.Name("MappingCount").Int(s.MappingCount)
	json.Name("BufferBytes").Int(s.BufferBytes)
	json.Name("MappedBytes").Int(s.MappedBytes)
}
