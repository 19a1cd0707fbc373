package handler

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"worker-hls/constant"
	"worker-hls/entities"
)

type fakeQueue struct {
	jobs []*entities.Job
}

func (q *fakeQueue) Enqueue(job *entities.Job) bool {
	q.jobs = append(q.jobs, job)
	return true
}

func (q *fakeQueue) Has(string) bool { return false }

var targets = []entities.Target{
	{Table: "hero_video", IDColumn: "id", SourceColumn: "video_path", PointerColumn: "video_hls_path"},
}

func TestUploadHandlerQueuesJob(t *testing.T) {
	q := &fakeQueue{}
	deps := ServiceDependencies{Queue: q, Targets: targets}
	msg := amqp.Delivery{Body: []byte(`{"fileName":"uploads/Clip.mp4","table":"hero_video","rowId":"12","force":true}`)}

	if err := UploadHandler(context.Background(), msg, deps); err != nil {
		t.Fatalf("UploadHandler: %v", err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("jobs = %d", len(q.jobs))
	}
	job := q.jobs[0]
	if job.FileName != "clip.mp4" || !job.Force || job.Source != constant.TriggerBroker {
		t.Fatalf("job = %+v", job)
	}
	if job.Owner == nil || job.Owner.RowID != "12" || job.Owner.PointerColumn != "video_hls_path" {
		t.Fatalf("owner = %+v", job.Owner)
	}
}

func TestUploadHandlerWithoutRow(t *testing.T) {
	q := &fakeQueue{}
	msg := amqp.Delivery{Body: []byte(`{"fileName":"clip.webm"}`)}

	if err := UploadHandler(context.Background(), msg, ServiceDependencies{Queue: q, Targets: targets}); err != nil {
		t.Fatalf("UploadHandler: %v", err)
	}
	if len(q.jobs) != 1 || q.jobs[0].Owner != nil || q.jobs[0].Force {
		t.Fatalf("jobs = %+v", q.jobs)
	}
}

func TestUploadHandlerRejectsBadMessages(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"fileName":""}`,
		`{"fileName":"report.pdf"}`,
		`{"fileName":"clip.mp4","table":"users","rowId":"1"}`,
	}
	for _, body := range bodies {
		q := &fakeQueue{}
		err := UploadHandler(context.Background(), amqp.Delivery{Body: []byte(body)}, ServiceDependencies{Queue: q, Targets: targets})
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("%s: err = %v, want ErrMalformedMessage", body, err)
		}
		if len(q.jobs) != 0 {
			t.Errorf("%s: nothing should be queued", body)
		}
	}
}
