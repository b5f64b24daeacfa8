package sqlinline

const QUpsertDownloadStat = `--sql 2c3fbdba-c83b-47ff-a30d-fd69c50fe2c6
insert into download_stats(archive_id, country, downloads)
values ($1::bigint, $2::text, 1)
on conflict (archive_id, country) do update
set downloads = download_stats.downloads + 1;
`

const QTopDownloadedArchives = `--sql 391ee805-5684-43e9-a484-3c69e90ce0d5
select a.id, a.name, c.name, c.professor, a.download_count
from archives a
join courses c on c.id = a.course_id
order by a.download_count desc, a.id
limit $1::int;
`

const QDownloadsByCountry = `--sql cf1d8d50-5b02-48db-a1bf-9953b0c9240e
select country, sum(downloads)
from download_stats
group by country
order by sum(downloads) desc;
`

const QPlatformTotals = `--sql fb13fffe-8b3a-4fa5-a720-9a82989b51cb
select
  (select count(*) from users),
  (select count(*) from courses),
  (select count(*) from archives),
  (select coalesce(sum(download_count), 0) from archives),
  (select count(*) from archive_discussion_messages where not deleted);
`
