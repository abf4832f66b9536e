package sqlinline

const QIsSourceBlocked = `--sql 486f2ef4-0fbf-45a0-9939-4f90fd033e2c
select exists (
  select 1
  from blocked_sources
  where identity_hash = $1::text
    and blocked_until > now()
);
`

const QBlockSource = `--sql 746896f0-3997-4dcb-a34e-16ef1ba6fbea
insert into blocked_sources(identity_hash, reason, blocked_until)
values ($1::text, $2::text, now() + make_interval(mins => $3::int))
on conflict (identity_hash)
do update set reason = excluded.reason,
              blocked_until = excluded.blocked_until;
`
