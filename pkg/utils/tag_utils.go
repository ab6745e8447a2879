package utils

import (
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// GetTagValue returns the value of a tag with the given key
func GetTagValue(tags []types.Tag, key string) string {
	for _, tag := range tags {
		if tag.Key != nil && *tag.Key == key {
			return SafeDeref(tag.Value)
		}
	}
	return ""
}

// GetName returns the value of the Name tag
func GetName(tags []types.Tag) string {
	return GetTagValue(tags, "Name")
}

// GetTagDescriptionsMap flattens DescribeTags results into a key/value map
func GetTagDescriptionsMap(tags []types.TagDescription) map[string]string {
	result := make(map[string]string, len(tags))
	for _, tag := range tags {
		if tag.Key != nil {
			result[*tag.Key] = SafeDeref(tag.Value)
		}
	}
	return result
}

// HasTagWithValue checks if a resource has a tag with the given key and value
func HasTagWithValue(tags []types.Tag, key, value string) bool {
	for _, tag := range tags {
		if tag.Key != nil && *tag.Key == key && tag.Value != nil && *tag.Value == value {
			return true
		}
	}
	return false
}
