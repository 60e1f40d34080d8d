// Package queue moves upload jobs between processes over Kafka.
package queue

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/camden-git/photopipeline/workers"
)

// jobMessage is the wire form of workers.UploadJob
type jobMessage struct {
	Version          int    `json:"v"`
	PhotoID          uint   `json:"photo_id"`
	TempPath         string `json:"temp_path"`
	OriginalFilename string `json:"original_filename"`
}

const messageVersion = 1

// EncodeJob builds the Kafka message for job. Messages are keyed by photo id
// so every job of one photo lands on the same partition.
func EncodeJob(job workers.UploadJob) (kafka.Message, error) {
	if err := job.Validate(); err != nil {
		return kafka.Message{}, err
	}
	value, err := json.Marshal(jobMessage{
		Version:          messageVersion,
		PhotoID:          job.PhotoID,
		TempPath:         job.TempPath,
		OriginalFilename: job.OriginalFilename,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode upload job: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(job.PhotoID), 10)),
		Value: value,
	}, nil
}

func DecodeJob(msg kafka.Message) (workers.UploadJob, error) {
	var m jobMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return workers.UploadJob{}, fmt.Errorf("failed to decode upload job: %w", err)
	}
	if m.Version != messageVersion {
		return workers.UploadJob{}, fmt.Errorf("unsupported upload job message version %d", m.Version)
	}
	job := workers.UploadJob{
		PhotoID:          m.PhotoID,
		TempPath:         m.TempPath,
		OriginalFilename: m.OriginalFilename,
	}
	if err := job.Validate(); err != nil {
		return workers.UploadJob{}, err
	}
	return job, nil
}
