package sqlinline

const QSelectProfileByID = `--sql d51e0f6c-829b-4e14-b8c2-9759528ef50f
select
    id::text,
    coalesce(email, ''),
    active_plan,
    free_generations_left,
    coalesce(last_free_reset_date, ''),
    pro_generations_left,
    coalesce(last_pro_reset_month_year, ''),
    version,
    updated_at
from user_profiles
where id = $1::uuid
limit 1;
`

// QUpdateProfile touches only the fields passed as non-null. $8 is the
// expected version; null skips the check.
const QUpdateProfile = `--sql 26a21944-4297-4ca0-ae85-fb0e160eabca
update user_profiles set
    email = coalesce($2::text, email),
    active_plan = coalesce($3::text, active_plan),
    free_generations_left = coalesce($4::int, free_generations_left),
    last_free_reset_date = coalesce($5::text, last_free_reset_date),
    pro_generations_left = coalesce($6::int, pro_generations_left),
    last_pro_reset_month_year = coalesce($7::text, last_pro_reset_month_year),
    version = version + 1,
    updated_at = now()
where id = $1::uuid
  and ($8::bigint is null or version = $8::bigint)
returning
    id::text,
    coalesce(email, ''),
    active_plan,
    free_generations_left,
    coalesce(last_free_reset_date, ''),
    pro_generations_left,
    coalesce(last_pro_reset_month_year, ''),
    version,
    updated_at;
`

const QSelectProfileVersion = `--sql 52240cff-d068-4c53-8343-baf6eff9249d
select version
from user_profiles
where id = $1::uuid
limit 1;
`

const QInsertProfile = `--sql 58ff90a6-48a9-402e-b5d8-81b116272b40
insert into user_profiles (id, email, active_plan, free_generations_left, last_free_reset_date,
                           pro_generations_left, last_pro_reset_month_year, version, updated_at)
values ($1::uuid, nullif($2::text, ''), 'FREE', $3::int, $4::text, $5::int, $6::text, 1, now())
on conflict (id) do nothing;
`

const QSelectProfileIDByEmail = `--sql b4f3e702-01c0-4631-bac7-6a88027ea722
select id::text
from user_profiles
where lower(email) = lower($1::text)
limit 1;
`
