package sqlinline

const QInsertDiscussionMessage = `--sql 4b6b5a4a-6732-4b8c-9865-b47f4352d3be
insert into archive_discussion_messages(archive_id, user_id, content, created_at)
values ($1::bigint, $2::bigint, $3::text, now())
returning id, created_at;
`

const QListDiscussionMessages = `--sql 22e800a7-b697-4bec-ac92-cee3d760e5e2
select m.id, m.archive_id, m.user_id, m.content, m.created_at, u.name, coalesce(u.nickname, '')
from archive_discussion_messages m
join users u on u.id = m.user_id
where m.archive_id = $1::bigint
  and not m.deleted
  and ($2::bigint = 0 or m.id < $2::bigint)
order by m.id desc
limit $3::int;
`

const QSelectDiscussionMessage = `--sql 61937c50-0871-4e6a-976b-193c2a18c747
select id, archive_id, user_id, deleted
from archive_discussion_messages
where id = $1::bigint
limit 1;
`

const QSoftDeleteDiscussionMessage = `--sql 247652b5-19d5-4fb0-940f-25086372320a
update archive_discussion_messages set deleted = true where id = $1::bigint and not deleted;
`
