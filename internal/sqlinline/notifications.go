package sqlinline

const QListNotifications = `--sql 5340b1b1-93b5-47e2-8869-81a6fe762fa3
select id, title, content, created_at
from notifications
where starts_at <= now()
  and (ends_at is null or ends_at > now())
order by created_at desc
limit $1::int;
`

const QInsertNotification = `--sql ce2b38bc-77be-49c8-9bd4-a243522add28
insert into notifications(title, content, starts_at, ends_at, created_at)
values ($1::text, $2::text, coalesce($3::timestamptz, now()), $4::timestamptz, now())
returning id, created_at;
`

const QDeleteNotification = `--sql 5c92c3ea-2f32-48e1-9277-684f9075767d
delete from notifications where id = $1::bigint;
`
