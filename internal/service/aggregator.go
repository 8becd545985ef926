package service

import "github.com/unclebandit/mailcampaign/internal/model"

// Aggregate reduces send jobs into a report. It only reads jobs, so repeated calls on the
// same slice give the same result. Batches counts distinct batch indices.
func Aggregate(jobs []model.SendJob, batchSize int) model.CampaignReport {
	r := model.CampaignReport{Total: len(jobs), BatchSize: batchSize}
	seen := make(map[int]struct{})
	for _, j := range jobs {
		switch j.Status {
		case model.SendSent:
			r.Successful++
		case model.SendFailed:
			r.Failed++
		}
		seen[j.BatchIndex] = struct{}{}
	}
	r.Batches = len(seen)
	return r
}

// SummarizeGeneration counts task outcomes.
func SummarizeGeneration(tasks []model.GenerationTask) model.Progress {
	p := model.Progress{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case model.GenerationGenerated:
			p.Successful++
		case model.GenerationFailed:
			p.Failed++
		}
	}
	p.Processed = p.Successful + p.Failed
	return p
}
