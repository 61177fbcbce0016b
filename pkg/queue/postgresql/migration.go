package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE queue_jobs (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL,
				step_id TEXT NOT NULL DEFAULT '',
				payload JSONB NOT NULL DEFAULT '{}'::jsonb,
				available_at TIMESTAMP WITH TIME ZONE NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 1,
				claimed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_queue_jobs_ready ON queue_jobs(available_at, id) WHERE claimed_at IS NULL;
			CREATE INDEX idx_queue_jobs_claimed_at ON queue_jobs(claimed_at) WHERE claimed_at IS NOT NULL;
			CREATE INDEX idx_queue_jobs_run_id ON queue_jobs(run_id);
		`,
	}
}
