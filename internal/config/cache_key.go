package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ResourceLeaseKey returns the lock key guarding one pipeline run per resource
func (r *CacheKeyStruct) ResourceLeaseKey(kind, resourceID string) string {
	return fmt.Sprintf("lease:%s:%s", kind, resourceID)
}

// ExerciseDetailKey returns the cache key for a finished exercise's detail payload
func (r *CacheKeyStruct) ExerciseDetailKey(exerciseID string) string {
	return fmt.Sprintf("exercise:%s:detail", exerciseID)
}

var CacheKey = NewCacheKeyStruct()
