package sqlinline

const QIncrementRateBucket = `--sql 9cee782e-9b8e-4b2f-83b8-26233f253fc3
insert into rate_limit_counters(bucket_key, identity_hash, endpoint, window_start, count)
values ($1::text, $2::text, $3::text, $4::timestamptz, 1)
on conflict (bucket_key)
do update set count = rate_limit_counters.count + 1;
`

const QSumRateWindow = `--sql 43e7099a-fc97-407e-a0dc-1b7d2befa493
select coalesce(sum(count), 0)
from rate_limit_counters
where identity_hash = $1::text
  and endpoint = $2::text
  and window_start >= $3::timestamptz;
`

const QDeleteOldRateBuckets = `--sql 8f34de8e-b530-4121-a925-5cefa5474f3c
delete from rate_limit_counters
where window_start < $1::timestamptz;
`
