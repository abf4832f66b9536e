package sqlinline

const QResolveUpload = `--sql 1e890fd2-9f15-4bb5-9f06-48dc1db1dcb6
select url
from uploads
where id = $1::text
  and owner_id = $2::text;
`
