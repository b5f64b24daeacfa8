package sqlinline

const QSelectUserByID = `--sql ead1c3c0-b0d1-4f3a-8af0-2d9ce65e91d3
select id, username, name, nickname, email, is_admin, created_at, last_login_at
from users
where id = $1::bigint
limit 1;
`

const QSelectUserByUsername = `--sql accd1b5c-1819-4ccd-befd-fd5024fb8bba
select id, username, name, coalesce(nickname, ''), email, coalesce(password_hash, ''), is_admin
from users
where username = $1::text
limit 1;
`

const QUpsertOAuthUser = `--sql 2f5629c3-ed9b-496d-a004-1d02b58f27c4
insert into users(username, name, email, created_at, updated_at, last_login_at)
values ($1::text, $2::text, $3::text, now(), now(), now())
on conflict (username) do update
set name = excluded.name,
    email = excluded.email,
    last_login_at = now(),
    updated_at = now()
returning id, is_admin;
`

const QInsertLocalUser = `--sql 49a9c731-5f5d-43d1-bb86-01d41c975df2
insert into users(username, name, email, password_hash, is_admin, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::boolean, now(), now())
returning id;
`

const QTouchLastLogin = `--sql 49364d97-1560-45ea-b877-938acfe84b23
update users set last_login_at = now(), updated_at = now() where id = $1::bigint;
`

const QUpdateUserNickname = `--sql e52a2139-7b2f-4563-90f7-6b9aa2c78197
update users set nickname = $2::text, updated_at = now() where id = $1::bigint;
`

const QSelectUserDisplayName = `--sql 0a94f43a-44c0-4168-a210-807f9f04388c
select name, coalesce(nickname, '') from users where id = $1::bigint limit 1;
`

const QSelectUserGeminiKey = `--sql 50eed7cb-e0bf-4993-a085-1a1730f2b29d
select coalesce(gemini_api_key, '') from users where id = $1::bigint limit 1;
`

const QUpdateUserGeminiKey = `--sql 329bda6c-3615-4424-87e7-a85de4895ef0
update users set gemini_api_key = nullif($2::text, ''), updated_at = now() where id = $1::bigint;
`

const QListUsers = `--sql 98948b2a-e1cd-477a-bcae-b59ebf810dc1
select id, username, name, nickname, email, is_admin, created_at, last_login_at
from users
order by id
limit $1::int offset $2::int;
`

const QSetUserAdmin = `--sql e8d00ea9-265d-4c88-bb9e-6e964af861bf
update users set is_admin = $2::boolean, updated_at = now() where id = $1::bigint;
`
