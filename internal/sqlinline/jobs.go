package sqlinline

const QCreateJob = `--sql eac384f8-79c1-497e-b9ed-1426c5600026
insert into jobs(id, user_id, order_id, upload_ids, style, edit_instruction, status, created_at, updated_at)
values ($1::uuid, $2::text, nullif($3::text, ''), $4::text[], $5::text, $6::text, 'queued', now(), now());
`

const QTransitionProcessing = `--sql 058778fb-076b-465e-85db-a58d71551728
update jobs
set status = 'processing',
    updated_at = now()
where id = $1::uuid
  and status = 'queued';
`

const QFinalizeJobSuccess = `--sql f5848e6f-82a0-4d32-ab8a-6989e07dbaad
update jobs
set status = 'completed',
    preview_key = $2::text,
    hd_key = $3::text,
    updated_at = now()
where id = $1::uuid
  and status in ('queued', 'processing');
`

const QFinalizeJobFailure = `--sql 6ef64d20-8c66-4456-82c9-765d2c121e48
update jobs
set status = 'failed',
    error_message = $2::text,
    updated_at = now()
where id = $1::uuid
  and status in ('queued', 'processing');
`

const QGetJob = `--sql abd02112-0731-453c-87db-9df76cb20823
select id, user_id, coalesce(order_id, ''), upload_ids, style, coalesce(edit_instruction, ''),
       status, coalesce(preview_key, ''), coalesce(hd_key, ''), coalesce(error_message, ''),
       created_at, updated_at
from jobs
where id = $1::uuid;
`

const QCountActiveJobs = `--sql ebb1ce3f-b5b7-4b46-bf26-57eb1202059d
select count(*)
from jobs
where status in ('queued', 'processing')
  and created_at >= $1::timestamptz;
`

const QCountActiveJobsForUser = `--sql ee53fc03-18d8-4280-ba1c-5a4bbca5d8c0
select count(*)
from jobs
where user_id = $1::text
  and status in ('queued', 'processing')
  and created_at >= $2::timestamptz;
`

const QSweepStaleJobs = `--sql 2de94ee7-a087-4b10-8bd8-780aa9760c62
update jobs
set status = 'failed',
    error_message = $2::text,
    updated_at = now()
where status in ('queued', 'processing')
  and created_at < $1::timestamptz;
`
