package sqlinline

const QListCourses = `--sql cfc37c0e-af6f-4a01-9e6b-3a6d5ce5a714
select c.id, c.name, c.professor, c.category, c.created_at, count(a.id)
from courses c
left join archives a on a.course_id = c.id
group by c.id
order by c.name, c.professor;
`

const QSelectCourseByID = `--sql fdca1840-0885-4615-9d40-06dd4010528d
select id, name, professor, category, created_at
from courses
where id = $1::bigint
limit 1;
`

const QInsertCourse = `--sql 4b845bd8-5b2c-4d3f-ba80-c9741636d009
insert into courses(name, professor, category, created_at, updated_at)
values ($1::text, $2::text, $3::text, now(), now())
returning id;
`

const QUpdateCourse = `--sql b11c8b7c-b420-4aae-b81e-3b997fd21bae
update courses
set name = $2::text, professor = $3::text, category = $4::text, updated_at = now()
where id = $1::bigint;
`

const QDeleteCourse = `--sql fc4f3d96-558f-4665-a97c-de5ec47c8225
delete from courses where id = $1::bigint;
`

const QCourseExists = `--sql 0b16d76d-788f-4b52-9900-441ab4375c07
select exists(select 1 from courses where id = $1::bigint);
`

const QSelectCourseIDByNameCategory = `--sql aae028f9-3349-401e-961c-f4289e5b5a7c
select id
from courses
where name = $1::text and category = $2::text
limit 1;
`
