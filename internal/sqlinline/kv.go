package sqlinline

// Schema for the PostgreSQL keyed store. Each statement runs on its own.
const QCreateKVEntries = `--sql 41d2ef01-852b-4bc9-a66f-ea85b801a7de
create table if not exists kv_entries (
    key        text primary key,
    value      bytea not null,
    expires_at timestamptz not null
);
`

const QCreateKVEntriesExpiryIndex = `--sql 0b17ee4c-554b-41f6-b7f0-e459f34ddfbc
create index if not exists kv_entries_expires_at_idx on kv_entries (expires_at);
`

const QCreateKVQueue = `--sql 0e40536f-7e04-4d73-85ed-03b09c0861b2
create table if not exists kv_queue (
    id          bigserial primary key,
    queue       text not null,
    value       bytea not null,
    enqueued_at timestamptz not null default now()
);
`

// $1 key
const QKVGet = `--sql 57a79d0c-97e5-4f67-9d96-e8f0a9a4c163
select value
from kv_entries
where key = $1
  and expires_at > now();
`

// $1 key, $2 value, $3 ttl in milliseconds
const QKVSet = `--sql e3997320-fdff-498f-8685-42827149816b
insert into kv_entries (key, value, expires_at)
values ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
on conflict (key) do update
set value = excluded.value,
    expires_at = excluded.expires_at;
`

// Inserts, or takes over a row that has already expired. One affected row
// means the caller now owns the key.
const QKVSetNX = `--sql d528ac79-851d-4c78-8302-b4506712b834
insert into kv_entries (key, value, expires_at)
values ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
on conflict (key) do update
set value = excluded.value,
    expires_at = excluded.expires_at
where kv_entries.expires_at <= now();
`

const QKVSetXX = `--sql 2909f82d-71be-424d-816a-cf248581c679
update kv_entries
set value = $2,
    expires_at = now() + ($3::bigint * interval '1 millisecond')
where key = $1
  and expires_at > now();
`

const QKVDelete = `--sql 40ddf717-ad91-4320-9fe5-0a1c4303b2e1
delete from kv_entries
where key = $1;
`

const QKVPurgeExpired = `--sql 0f82f23c-d5ee-4182-a0be-0ef779555de3
delete from kv_entries
where expires_at <= now();
`

// $1 queue, $2 value
const QQueuePush = `--sql d77255c9-bb1e-4199-a5c5-d6939bd2495c
insert into kv_queue (queue, value)
values ($1, $2);
`

const QQueuePop = `--sql 8c1e5f0a-3b7d-4a52-9e61-6f2d0b9c4a18
with next_item as (
    select id
    from kv_queue
    where queue = $1
    order by id asc
    for update skip locked
    limit 1
)
delete from kv_queue
where id in (select id from next_item)
returning value;
`

const QPing = `--sql 5b9a7c13-2e4f-4d8b-a0c6-91f3e7d2b845
select 1;
`
