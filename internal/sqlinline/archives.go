package sqlinline

const QInsertArchive = `--sql effd9eeb-2dc1-4081-9e7a-ba2dd80d15c8
insert into archives(
  course_id,
  uploader_id,
  name,
  archive_type,
  academic_year,
  filename,
  object_key,
  content_type,
  size_bytes,
  has_answers,
  created_at,
  updated_at
) values (
  $1::bigint,
  $2::bigint,
  $3::text,
  $4::text,
  $5::int,
  $6::text,
  $7::text,
  $8::text,
  $9::bigint,
  $10::boolean,
  now(),
  now()
) returning id, created_at;
`

const QSelectArchiveByID = `--sql 252da226-2d27-40db-863c-ee94aafbdf09
select
  a.id,
  a.course_id,
  a.uploader_id,
  a.name,
  a.archive_type,
  a.academic_year,
  a.filename,
  a.object_key,
  a.content_type,
  a.size_bytes,
  a.download_count,
  a.has_answers,
  a.created_at,
  c.name,
  c.professor
from archives a
join courses c on c.id = a.course_id
where a.id = $1::bigint
limit 1;
`

const QListArchivesByCourse = `--sql 0f8c04a8-bc1e-4b53-b995-686b0a44e84c
select
  a.id,
  a.course_id,
  a.uploader_id,
  a.name,
  a.archive_type,
  a.academic_year,
  a.filename,
  a.content_type,
  a.size_bytes,
  a.download_count,
  a.has_answers,
  a.created_at
from archives a
where a.course_id = $1::bigint
order by a.academic_year desc, a.created_at desc;
`

const QSearchArchives = `--sql bf048bd4-510d-4b69-a86f-6fb2b85c425b
select
  a.id,
  a.course_id,
  a.uploader_id,
  a.name,
  a.archive_type,
  a.academic_year,
  a.filename,
  a.content_type,
  a.size_bytes,
  a.download_count,
  a.has_answers,
  a.created_at,
  c.name,
  c.professor
from archives a
join courses c on c.id = a.course_id
where ($1::text = '' or a.name ilike '%' || $1::text || '%' or c.name ilike '%' || $1::text || '%' or c.professor ilike '%' || $1::text || '%')
  and ($2::text = '' or a.archive_type = $2::text)
  and ($3::int = 0 or a.academic_year = $3::int)
order by a.academic_year desc, a.created_at desc
limit $4::int offset $5::int;
`

const QLatestArchives = `--sql 4e773e67-b042-40df-8354-4548095cce7b
select
  a.id,
  a.course_id,
  a.name,
  a.archive_type,
  a.academic_year,
  a.created_at,
  c.name,
  c.professor
from archives a
join courses c on c.id = a.course_id
order by a.created_at desc
limit $1::int;
`

const QUpdateArchive = `--sql c3064983-2d7e-4157-87dc-c280dcb457e6
update archives
set name = $2::text,
    archive_type = $3::text,
    academic_year = $4::int,
    has_answers = $5::boolean,
    updated_at = now()
where id = $1::bigint;
`

const QTransferArchiveCourse = `--sql 981db82e-0108-4b33-883f-0567cee43ce5
update archives set course_id = $2::bigint, updated_at = now() where id = $1::bigint;
`

const QDeleteArchive = `--sql 6dfb0368-e969-45b7-bc87-da30415c213d
delete from archives where id = $1::bigint returning object_key;
`

const QIncrementDownloadCount = `--sql ce3c8c31-e8c8-46da-a41b-e50f9526a880
update archives set download_count = download_count + 1 where id = $1::bigint;
`

const QSelectArchivesByIDs = `--sql 8682335c-32be-4d63-8043-dbafc756efab
select
  a.id,
  a.name,
  a.archive_type,
  a.academic_year,
  a.object_key,
  a.content_type,
  c.name,
  c.professor
from archives a
join courses c on c.id = a.course_id
where a.id = any($1::bigint[])
order by a.academic_year desc, a.id;
`

const QArchiveExists = `--sql 42d1c989-72a6-4b67-9e29-3f973d1ecf90
select exists(select 1 from archives where id = $1::bigint);
`

const QListCourseObjectKeys = `--sql 4435ae06-0875-4c2f-a741-7623f3b89c4c
select a.id, a.filename, a.object_key
from archives a
where a.course_id = $1::bigint
order by a.academic_year desc, a.created_at desc;
`
