package sqlinline

const QCreateGenerationRuns = `--sql 318ad10b-d43e-48ad-b5c8-700d15f6d62c
create table if not exists generation_runs (
    id uuid primary key,
    started_at timestamptz not null,
    finished_at timestamptz,
    total_specs integer not null,
    concurrency integer not null,
    max_attempts integer not null,
    submitted integer not null default 0,
    attempts integer not null default 0,
    completed integer not null default 0,
    failed integer not null default 0,
    timed_out integer not null default 0
);
`

const QCreateGenerationOutcomes = `--sql 0aabd108-35c3-47aa-8c83-2ab914678dba
create table if not exists generation_outcomes (
    id bigserial primary key,
    run_id uuid not null references generation_runs(id) on delete cascade,
    spec_id text not null,
    destination text not null,
    kind text not null,
    artifact_path text not null default '',
    reason text not null default '',
    attempts integer not null,
    job_ids text[] not null default '{}',
    duration_ms bigint not null,
    recorded_at timestamptz not null default now()
);
create index if not exists generation_outcomes_run_idx on generation_outcomes (run_id);
`

const QInsertGenerationRun = `--sql 2bcd0581-9226-47a6-baa8-46392f3095ed
insert into generation_runs (id, started_at, total_specs, concurrency, max_attempts)
values ($1, $2, $3, $4, $5);
`

const QInsertGenerationOutcome = `--sql e4085d0a-9905-4483-b823-e30efab0dcba
insert into generation_outcomes (run_id, spec_id, destination, kind, artifact_path, reason, attempts, job_ids, duration_ms)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

const QFinishGenerationRun = `--sql 24c6ee96-ac0e-45ff-b949-440d0f632804
update generation_runs
set finished_at = $2,
    submitted = $3,
    attempts = $4,
    completed = $5,
    failed = $6,
    timed_out = $7
where id = $1;
`

const QListGenerationRuns = `--sql b4d8b297-c9d7-459b-8298-5d7be8c595b7
select id::text, started_at, finished_at, total_specs, submitted, attempts, completed, failed, timed_out
from generation_runs
order by started_at desc
limit $1;
`
